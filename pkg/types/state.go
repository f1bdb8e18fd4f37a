package types

// UploadStatus is the lifecycle state of an upload batch.
type UploadStatus string

// Upload lifecycle states
const (
	UploadActive   UploadStatus = "active"   // Posts visible in the dashboard
	UploadArchived UploadStatus = "archived" // Hidden, restorable
	UploadDeleted  UploadStatus = "deleted"  // Soft-deleted, awaiting purge
)

// ValidUploadStatuses contains all valid upload status values
var ValidUploadStatuses = []UploadStatus{
	UploadActive,
	UploadArchived,
	UploadDeleted,
}

// IsValidUploadStatus checks if the given status is a valid upload status.
func IsValidUploadStatus(status UploadStatus) bool {
	for _, valid := range ValidUploadStatuses {
		if status == valid {
			return true
		}
	}
	return false
}

// IsValidUploadTransition validates upload status changes.
//
// Valid transitions:
//
//	active -> archived
//	archived -> active | deleted
//	deleted -> archived
//
// Permanent removal is a separate purge operation allowed only from deleted.
func IsValidUploadTransition(current, next UploadStatus) bool {
	switch current {
	case UploadActive:
		return next == UploadArchived
	case UploadArchived:
		return next == UploadActive || next == UploadDeleted
	case UploadDeleted:
		return next == UploadArchived
	default:
		return false
	}
}

// CanPurge reports whether an upload in the given status may be permanently removed.
func CanPurge(status UploadStatus) bool {
	return status == UploadDeleted
}
