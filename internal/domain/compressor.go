package domain

// Compressor packs artifacts for replication and unpacks compressed
// artifacts before a restore.
type Compressor interface {
	Compress(sourcePath, destPath string) error
	Decompress(sourcePath, destPath string) error
	Extension() string
}
