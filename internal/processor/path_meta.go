package processor

import (
	"fmt"
	"path/filepath"
	"strings"

	"cv-ingest-go/internal/constants"
	"cv-ingest-go/internal/types"
)

// DeriveDocumentHandle 根据相对数据根目录的路径推出岗位和来源:
// root/<岗位>/<来源>/.../cv.pdf 取前两级目录，层级不足两级时都使用默认值。
func DeriveDocumentHandle(root, path string) (types.DocumentHandle, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return types.DocumentHandle{}, fmt.Errorf("计算相对路径失败: %w", err)
	}

	h := types.DocumentHandle{
		Path:     path,
		RelPath:  filepath.ToSlash(rel),
		FileName: filepath.Base(path),
		JobTitle: constants.DefaultJobTitle,
		Source:   constants.DefaultSource,
	}

	dir := filepath.Dir(rel)
	if dir == "." {
		return h, nil
	}
	segments := strings.Split(filepath.ToSlash(dir), "/")
	if len(segments) >= 2 {
		h.JobTitle = segments[0]
		h.Source = segments[1]
	}
	return h, nil
}

// IsPDF 只处理 .pdf 文件，扩展名不区分大小写
func IsPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), constants.PDFExtension)
}

// FileIndex 多维表格中已存在的文件名快照，运行期间不刷新
type FileIndex map[string]struct{}

// BuildFileIndex 以 File CV 单元格的显示名为键
func BuildFileIndex(records []types.ExistingRecord) FileIndex {
	idx := make(FileIndex, len(records))
	for _, r := range records {
		if r.FileCV != nil && r.FileCV.Text != "" {
			idx[r.FileCV.Text] = struct{}{}
		}
	}
	return idx
}

// Contains 文件名是否已存在
func (idx FileIndex) Contains(fileName string) bool {
	_, ok := idx[fileName]
	return ok
}
