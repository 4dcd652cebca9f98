package sup

// Version is the current version of sup
const Version = "0.4.0"

// ProtocolVersion names the control wire format spoken by this version
const ProtocolVersion = "sup/1"

// VersionInfo contains detailed version information
type VersionInfo struct {
	// Version is the semantic version
	Version string
	// Protocol is the control protocol version spoken on the socket
	Protocol string
}

// GetVersion returns the current version information
func GetVersion() VersionInfo {
	return VersionInfo{
		Version:  Version,
		Protocol: ProtocolVersion,
	}
}
