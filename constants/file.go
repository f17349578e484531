package constants

import "strings"

// DocumentExtensions are the files the directory loader picks up as serialized document views.
var DocumentExtensions = map[string]struct{}{
	"json": {},
}

// ImageExtensions are routed through OCR before loading.
var ImageExtensions = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"tif":  {},
	"tiff": {},
}

// GroundTruthFile is the sidecar file holding verified field values for a directory.
const GroundTruthFile = "ground_truth.json"

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
