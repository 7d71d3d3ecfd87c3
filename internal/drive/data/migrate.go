package data

// Models lists every persisted model for schema migration
func Models() []interface{} {
	return []interface{}{
		&UserPO{},
		&FolderPO{},
		&FilePO{},
		&ShareLinkPO{},
		&ScanJobPO{},
	}
}
