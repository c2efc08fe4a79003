package enums

// BackupState is the phase of a single backup pass.
type BackupState string

const (
	BackupStateIdle                BackupState = "idle"
	BackupStateProbing             BackupState = "probing"
	BackupStateAuthenticating      BackupState = "authenticating"
	BackupStateLocatingFolder      BackupState = "locating_folder"
	BackupStateLocatingDailyFolder BackupState = "locating_daily_folder"
	BackupStateUploading           BackupState = "uploading"
	BackupStateAborted             BackupState = "aborted"
)

// BackupOutcome labels how a backup pass ended.
type BackupOutcome string

const (
	BackupOutcomeUploaded        BackupOutcome = "uploaded"
	BackupOutcomeOffline         BackupOutcome = "offline"
	BackupOutcomeUnauthenticated BackupOutcome = "unauthenticated"
	BackupOutcomeFailed          BackupOutcome = "failed"
	BackupOutcomeSkipped         BackupOutcome = "skipped"
)
