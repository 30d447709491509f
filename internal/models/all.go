package models

// All lists every model handled by auto-migration.
func All() []interface{} {
	return []interface{}{
		&User{},
		&AuthorizedEmail{},
		&Genre{},
		&Director{},
		&Movie{},
		&Favorite{},
		&APIToken{},
		&AuditLog{},
		&UploadSession{},
	}
}
