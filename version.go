package keepself

// Version is the current version of the go-keepself library
const Version = "1.0.0"

// VersionInfo contains detailed version information
type VersionInfo struct {
	// Version is the semantic version
	Version string
	// IdentitySize is the size of the identity record this version reads and writes
	IdentitySize int
	// Features are the feature names this version understands
	Features []string
}

// GetVersion returns the current version information
func GetVersion() VersionInfo {
	return VersionInfo{
		Version:      Version,
		IdentitySize: IdentitySize,
		Features:     Features(^uint32(0)).Names(),
	}
}
