package storage

import "path/filepath"

const (
	PagePDFName  = "page.pdf"
	PageTextName = "page.txt"
)

// shard spreads ids over two directory levels: "abcdef" -> ab/cd/abcdef.
func shard(id string) string {
	if len(id) < 4 {
		return id
	}
	return filepath.Join(id[0:2], id[2:4], id)
}

// DocVersionPath is the media-root-relative path of a version's file.
func DocVersionPath(versionID, fileName string) string {
	return filepath.Join("docvers", shard(versionID), fileName)
}

// DocVersionDir is the directory holding a version's file.
func DocVersionDir(versionID string) string {
	return filepath.Join("docvers", shard(versionID))
}

// PageDir is the media-root-relative directory of a page's artifacts.
func PageDir(pageID string) string {
	return filepath.Join("ocr", "pages", shard(pageID))
}

func PagePDFPath(pageID string) string {
	return filepath.Join(PageDir(pageID), PagePDFName)
}

func PageTextPath(pageID string) string {
	return filepath.Join(PageDir(pageID), PageTextName)
}
