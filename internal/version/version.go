// ABOUTME: Version information for admsync
// ABOUTME: Reported in the visualizer handshake and by -version
package version

const (
	// Version is the current release
	Version = "0.3.0"

	// Product is the product name
	Product = "admsync"

	// Manufacturer identifies who built it
	Manufacturer = "Resonate Protocol"
)

// Software identifies this build in handshakes, e.g. "admsync/0.3.0"
func Software() string {
	return Product + "/" + Version
}
