// Package iso8211 reads and writes ISO/IEC 8211 files, the record format
// underneath S-57 charts, ADRG, DIGEST and SDTS.
//
// A file starts with the Data Descriptive Record (DDR), which defines every
// field that may occur: its tag, structure and the format of each subfield.
// Data records follow, each with a directory of the field occurrences it
// holds.
//
// # Reading
//
//	m, err := iso8211.Open("US5MA22M.000")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer m.Close()
//
//	for {
//	    rec, err := m.ReadRecord()
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    for _, f := range rec.Fields() {
//	        fmt.Println(f.Tag(), f.RepeatCount())
//	    }
//	}
//
// The record returned by ReadRecord is reused by the next call. Use
// Record.Clone to keep one.
//
// # Writing
//
//	m, err := iso8211.Create("out.000")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defn, _ := iso8211.NewFieldDefn("DSID", "Data set identification field", "RCNM!RCID!DSNM",
//	    iso8211.Vector, iso8211.MixedDataType, "(b11,b14,A)")
//	m.AddField(defn)
//
//	rec := iso8211.NewRecord(m)
//	rec.AddField(defn)
//	rec.SetIntSubfield("DSID", 0, "RCNM", 0, 10)
//	rec.SetStringSubfield("DSID", 0, "DSNM", 0, "US5MA22M.000")
//	if err := rec.Write(); err != nil {
//	    log.Fatal(err)
//	}
//	m.Close()
//
// # Errors
//
// Errors match the Err* sentinels with errors.Is. Decode problems are also
// logged on the zap logger passed in OpenOptions; the default logger
// discards them.
//
// A Module and its records must be used from one goroutine at a time.
package iso8211
