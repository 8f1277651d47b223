// Command admin provides operational commands for the link proxy.
//
// Usage:
//
//	# Print the effective configuration with secrets masked
//	admin config-check
//
//	# Show the latest audit events
//	admin audit-tail --limit 50
//
//	# Show version information
//	admin version
package main

func main() {
	Execute()
}
