// Package statuslog implements the per-table segment status log: a
// durable, whole-file-persisted record of segment entries, plus the
// on-disk naming convention for staged and backup copies used by the
// cross-table commit protocol.
package statuslog

import "strings"

const (
	// liveName is the authoritative status log file name.
	liveName = "tablestatus"

	backupMarker = "tablestatus_backup_"
)

// LiveName returns the file name of the authoritative status log.
func LiveName() string {
	return liveName
}

// StagedName returns the file name of a staged status log for the
// given commit attempt token.
func StagedName(token string) string {
	return liveName + "_" + token
}

// BackupName returns the file name of the pre-attempt backup for the
// given commit attempt token. An empty token degenerates to the bare
// "tablestatus_backup_" prefix; real commits always carry a token.
func BackupName(token string) string {
	return backupMarker + token
}

// IsStagedFor reports whether name is the staged log for token.
func IsStagedFor(name, token string) bool {
	return token != "" && name == StagedName(token)
}

// IsBackup reports whether name is a backup copy for any token.
func IsBackup(name string) bool {
	return strings.HasPrefix(name, backupMarker)
}

// IsBackupFor reports whether name is the backup copy for token.
func IsBackupFor(name, token string) bool {
	return token != "" && name == BackupName(token)
}

// BelongsToAttempt reports whether name is an artifact of the commit
// attempt identified by token (staged or backup).
func BelongsToAttempt(name, token string) bool {
	return IsStagedFor(name, token) || IsBackupFor(name, token)
}
