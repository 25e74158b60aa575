// Package iso8211 is a convenience layer over the ISO 8211 record engine in
// pkg/iso8211 for applications that want whole files in memory, like the
// S-57 chart parser.
//
// # Basic Usage
//
//	reader, err := iso8211.NewReader("US5MA22M.000")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer reader.Close()
//
//	isoFile, err := reader.Parse()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, record := range isoFile.Records {
//	    if dsid, ok := record.Fields["DSID"]; ok {
//	        name, _ := record.Text("DSID", "DSNM")
//	        fmt.Printf("DSID %d bytes, data set %s\n", len(dsid), name)
//	    }
//	}
//
// # Record Access
//
// DataRecord.Fields maps each tag to the raw bytes of its first
// occurrence with the field terminator removed. Occurrences holds every
// occurrence. Decoded subfield values are available through Int, Float
// and Text, which use the field definitions of the file.
//
// # Record Index
//
// BuildIndex scans a file once and keeps the byte extent of every record
// in an R-tree, so records can be fetched by ordinal or by file offset
// without reading the records before them:
//
//	idx, err := iso8211.BuildIndex("US5MA22M.000")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer idx.Close()
//
//	rec, err := idx.Record(1200)
//
// # Many Files
//
// ParseFiles parses a set of files concurrently, one Module per file:
//
//	files, errs := iso8211.ParseFiles(ctx, paths, iso8211.DefaultLoadOptions())
//
// # Performance
//
// - Parse keeps every record in memory; use Reader.Next to stream
// - Field bytes are copied once per record, decoding is lazy
// - BuildIndex reads each leader and directory but decodes no subfields
package iso8211
