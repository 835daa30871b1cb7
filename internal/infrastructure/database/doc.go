// Package database opens the dtuhub SQLite store and applies its schema
// migrations.
//
// Migrations are read from any fs.FS, normally the embedded one in the
// top-level migrations package:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
