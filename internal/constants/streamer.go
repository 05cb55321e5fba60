package constants

// Notices shown to the operator.
const (
	NoticePermissionGranted = "Permission Granted"
	NoticePermissionDenied  = "Permission Denied"
	NoticeDataPosted        = "Data posted to API"
	NoticeResponseCode      = "Response Code : %d"
	NoticeUploadError       = "Error:%s"
	NoticeUpdatesStopped    = "Location updates stopped: %s"
	NoticePermissionRevoked = "Permission revoked: %s"
)

// Upload triggers
const (
	// TriggerPerFix uploads once per new fix, coalescing fixes that arrive during an upload.
	TriggerPerFix = "per_fix"
	// TriggerInterval uploads the held record on a fixed timer when it changed.
	TriggerInterval = "interval"
)

// Location providers
const (
	ProviderSerial = "serial"
	ProviderReplay = "replay"
	ProviderGoogle = "google"
)
