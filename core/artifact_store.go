package core

// ArtifactStore persists opaque blobs scoped by a session identifier. The
// result pipeline uses it to archive the raw serialized ResultPackage under
// its originating context package id. Implementations should be thread-safe.
type ArtifactStore interface {
	Save(sessionID, artifactID string, data []byte) error
	Get(sessionID, artifactID string) ([]byte, error)
	List(sessionID string) ([]string, error)
	Delete(sessionID, artifactID string) error
}
