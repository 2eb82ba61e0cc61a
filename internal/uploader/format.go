package uploader

import (
	"fmt"
	"math"
)

var byteUnits = []string{"B", "KB", "MB", "GB"}

// BytesToHuman renders a byte count with binary units, e.g. "1.5 MB".
func BytesToHuman(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}
	unit := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	unit = min(unit, len(byteUnits)-1)
	value := float64(bytes) / math.Pow(1024, float64(unit))
	if unit == 0 {
		return fmt.Sprintf("%.0f %s", value, byteUnits[unit])
	}
	return fmt.Sprintf("%.1f %s", value, byteUnits[unit])
}

func StatusLabel(s Status) string {
	switch s {
	case StatusProcessing:
		return "Processing"
	case StatusPending:
		return "Ready for upload"
	case StatusUploading:
		return "Uploading"
	case StatusSuccess:
		return "Uploaded"
	default:
		return "Failed"
	}
}
