package storage

import (
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	documentPrefix = "documents/"
	exportPrefix   = "exports/"
	maxKeyLen      = 255
)

// DocumentObjectKey 为申请材料生成对象键：documents/<applicationID>/<uuid><ext>。
func DocumentObjectKey(applicationID, ext string) string {
	return fmt.Sprintf("%s%s/%s%s", documentPrefix, applicationID, uuid.NewString(), ext)
}

// ExportObjectKey 为导出文件生成对象键：exports/<programID>/<fileName>。
func ExportObjectKey(programID, fileName string) string {
	return exportPrefix + programID + "/" + path.Base(fileName)
}

// IsDocumentKeyFor 校验对象键属于指定申请，拒绝路径穿越与异常字符。
func IsDocumentKeyFor(applicationID, key string) bool {
	if applicationID == "" || key == "" || !utf8.ValidString(key) || len(key) > maxKeyLen {
		return false
	}
	if !strings.HasPrefix(key, documentPrefix+applicationID+"/") {
		return false
	}
	if strings.Contains(key, "..") || strings.Contains(key, "\\") || strings.Contains(key, "//") {
		return false
	}
	return true
}
