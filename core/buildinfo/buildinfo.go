package buildinfo

// These variables are intended to be set via -ldflags at build time:
//
//	-X github.com/m3rciful/godialog/core/buildinfo.Commit=<sha>
//	-X github.com/m3rciful/godialog/core/buildinfo.Date=<date>
var (
	// Commit is the VCS revision the binary was built from.
	Commit = "unknown"
	// Date is the build timestamp.
	Date = "unknown"
)
