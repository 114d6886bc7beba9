package main

// Short messages (one-liners)
const (
	// Command descriptions
	MsgRootShort    = "Import configuration snapshots into a home directory"
	MsgImportShort  = "Import an exported archive"
	MsgListShort    = "List the content of an exported archive"
	MsgVersionShort = "Print version information"

	MsgRootLong = `homemigrate restores a versioned configuration snapshot, exported as a zip
archive, into the home directory of a system. Each migratable restores its own
slice of the archive according to the version it was exported with.`

	MsgImportLong = `Import restores every migratable found in the archive. Migratables exported
with the current version are restored, the others are reported. The command
exits with an error when the import report holds errors.`

	// Flag descriptions
	MsgFlagVerbose = "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)"
	MsgFlagConfig  = "Configuration file (default is $XDG_CONFIG_HOME/homemigrate/config.toml)"
	MsgFlagHome    = "Home directory to import into (default is $HOMEMIGRATE_HOME or the user home)"
	MsgFlagNoColor = "Disable colored output"
	MsgFlagOutput  = "Output format: text, json or yaml"

	// Output
	MsgVersionFormat = "homemigrate version %s\n  commit: %s\n  built:  %s\n"

	// Error messages
	MsgErrImportFailed = "import completed with %d error(s)"
)
