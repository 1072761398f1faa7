package go_playsight

import (
	"fmt"
	"runtime"
)

func VersionNumberString() string {
	return "dev"
}

func VersionString() string {
	return fmt.Sprintf("go-playsight %s", VersionNumberString())
}

func SystemInfoString() string {
	return fmt.Sprintf("%s; Go %s", VersionString(), runtime.Version())
}
