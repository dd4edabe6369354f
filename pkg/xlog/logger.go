package xlog

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
)

var logger = log.New(os.Stdout, "[GATEWAY] ", log.LstdFlags)

func Infof(format string, v ...interface{}) {
	logger.Printf("[INFO] "+format, v...)
}

func Errorf(format string, v ...interface{}) {
	logger.Printf("[ERROR] "+format, v...)
}

func Warnf(format string, v ...interface{}) {
	logger.Printf("[WARN] "+format, v...)
}

func Debugf(format string, v ...interface{}) {
	fmt.Printf("[DEBUG] "+format+"\n", v...)
}

// WithFields logs msg at Debug level with key=value context appended,
// fields sorted by key for deterministic output. Meant for the hot paths
// that want structure without pulling in a structured-logging dependency
// the rest of this package never carried.
func WithFields(msg string, fields map[string]interface{}) {
	if len(fields) == 0 {
		Debugf("%s", msg)
		return
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(msg)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	Debugf("%s", b.String())
}

