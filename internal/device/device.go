package device

import (
	"os"
	"runtime"

	"github.com/ThatSaxyDev/telling-logger-go/internal/domain"
)

// Collect returns a snapshot of host metadata. It never fails: any field
// that cannot be determined is left empty, falling back to platform-only.
func Collect(appVersion, appBuildNumber string) domain.Device {
	snapshot := domain.Device{
		Platform:       runtime.GOOS,
		OSVersion:      runtime.GOARCH,
		AppVersion:     appVersion,
		AppBuildNumber: appBuildNumber,
	}
	if host, err := os.Hostname(); err == nil {
		snapshot.DeviceModel = host
	}
	return snapshot
}
