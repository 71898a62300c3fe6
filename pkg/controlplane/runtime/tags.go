package runtime

import (
	"fmt"
	goruntime "runtime"
	"strconv"
	"time"

	"github.com/marmos91/dittonet/pkg/controlplane/api/handlers"
	"github.com/marmos91/dittonet/pkg/store/slots"
)

// tagParser exposes runtime state to the admin page as <%TAG%>
// placeholders. Values are read when the page is served.
func (rt *Runtime) tagParser() handlers.TagParser {
	tags := handlers.TagParser{
		"HOSTNAME":     func() string { return rt.cfg.General.Hostname },
		"VERSION":      func() string { return rt.info.Version },
		"BUILD_DATE":   func() string { return rt.info.Date },
		"OS":           func() string { return goruntime.GOOS + "/" + goruntime.GOARCH },
		"BUS":          func() string { return rt.engine.Name() },
		"UPTIME":       func() string { return time.Since(rt.started).Truncate(time.Second).String() },
		"SD":           func() string { return yesNo(rt.sd != nil) },
		"PRINTER":      func() string { return yesNo(rt.printer != nil) },
		"PRINTER_TYPE": rt.printerType,
	}

	for i := range slots.Count {
		n := strconv.Itoa(i + 1)
		tags["HOST"+n] = func() string { return rt.fuji.Hosts()[i] }
		tags["DRIVE"+n] = func() string { return rt.driveLabel(i) }
	}
	return tags
}

func (rt *Runtime) printerType() string {
	if rt.printer == nil {
		return ""
	}
	return rt.printer.Paper().String()
}

// driveLabel describes disk slot i as "host:path (mode)".
func (rt *Runtime) driveLabel(i int) string {
	d := rt.fuji.Disks()[i]
	if d.Empty() {
		return ""
	}
	return fmt.Sprintf("%d:%s (%s)", d.Host+1, d.Path, d.Mode)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
