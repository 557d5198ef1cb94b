package version

const (
	CLIName = "gasless"
	Version = "0.1.0"
)
