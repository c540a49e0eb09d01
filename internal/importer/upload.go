package importer

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// ErrNotWorkbook 上传内容不是 .xlsx 工作簿
var ErrNotWorkbook = errors.New("only .xlsx workbooks are supported")

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// TempName 上传临时文件名 tmp_{project}_{uuid}_{name}
func TempName(projectID int64, name string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("tmp_%d_%s_%s", projectID, id, filepath.Base(name))
}

// FinalPath 工作簿最终存放路径 {dir}/{project_id}_{hash}.xlsx
func FinalPath(dir string, projectID int64, hash string) string {
	return filepath.Join(dir, fmt.Sprintf("%d_%s.xlsx", projectID, hash))
}

// checkWorkbook 扩展名必须为 .xlsx，内容必须是 OOXML（zip）容器
func checkWorkbook(name, path string) error {
	if !strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return ErrNotWorkbook
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return fmt.Errorf("detect upload type: %w", err)
	}
	for m := mt; m != nil; m = m.Parent() {
		if m.Is(xlsxMIME) || m.Is("application/zip") {
			return nil
		}
	}
	return fmt.Errorf("%w: got %s", ErrNotWorkbook, mt.String())
}

// Stored 已保存的上传文件
type Stored struct {
	Path string
	Hash string
}

// SaveUpload 把上传内容写入临时文件并计算 sha256，校验通过后改名为最终路径。
// 相同内容的文件已存在时直接复用
func SaveUpload(dir string, projectID int64, name string, r io.Reader) (*Stored, error) {
	if !strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return nil, ErrNotWorkbook
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	tmp := filepath.Join(dir, TempName(projectID, name))
	f, err := os.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("create temp upload: %w", err)
	}
	defer os.Remove(tmp)

	h := sha256.New()
	_, err = io.Copy(io.MultiWriter(f, h), r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("write temp upload: %w", err)
	}
	if err := checkWorkbook(name, tmp); err != nil {
		return nil, err
	}

	hash := hex.EncodeToString(h.Sum(nil))
	final := FinalPath(dir, projectID, hash)
	if _, err := os.Stat(final); err == nil {
		return &Stored{Path: final, Hash: hash}, nil
	}
	if err := os.Rename(tmp, final); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	return &Stored{Path: final, Hash: hash}, nil
}

// RemoveUpload 删除运行对应的工作簿文件，文件不存在不算错误
func RemoveUpload(dir string, projectID int64, hash string) error {
	err := os.Remove(FinalPath(dir, projectID, hash))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
