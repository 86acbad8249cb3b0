package constants

// Redis key layout. Naming convention: app:{module}:{entity}[:{id}].
const (
	AppPrefix = "app"

	FileModulePrefix = "file"

	EntityDedupSet = "dedup_set"

	// KeyFileMD5Set holds the MD5 of every ingested document per tenant (SET).
	// Format: app:file:dedup_set:{tenantID}
	KeyFileMD5Set = AppPrefix + ":" + FileModulePrefix + ":" + EntityDedupSet + ":%s"
)
