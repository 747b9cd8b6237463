package config

import "fmt"

func errorf(typeMethod, format string, a ...interface{}) error {
	return fmt.Errorf("github.com/dvanderweele/vzfs/internal/config."+typeMethod+": "+format, a...)
}
