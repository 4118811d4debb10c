package service

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilenameSanitizer_File(t *testing.T) {
	s := NewFilenameSanitizer(200)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"chinese punctuation", "包装出海研究报告：纸包装、金属包装、塑料包装（33页）", "包装出海研究报告_纸包装_金属包装_塑料包装_33页"},
		{"keeps extension", "报告《2024》-第一季度.pdf", "报告_2024_-第一季度.pdf"},
		{"ascii illegal characters", `2024年<新能源>行业分析：趋势/展望`, "2024年_新能源_行业分析_趋势_展望"},
		{"collapses separators", "a  __ b..c.zip", "a_b_c.zip"},
		{"archive entry path is flattened", "docs/inner/report.pdf", "docs_inner_report.pdf"},
		{"empty falls back", "【】", "unnamed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.File(tt.input))
		})
	}
}

func TestFilenameSanitizer_TitleHasNoForbiddenCharacters(t *testing.T) {
	s := NewFilenameSanitizer(200)
	got := s.Title("包装出海研究报告：纸包装、金属包装、塑料包装（33页）", 0)

	for _, forbidden := range []string{":", "：", "（", "）", "，", ",", "、", " "} {
		assert.NotContains(t, got, forbidden)
	}
	assert.Contains(t, got, "_")
	assert.LessOrEqual(t, utf8.RuneCountInString(got), 200)
}

func TestFilenameSanitizer_Folder(t *testing.T) {
	s := NewFilenameSanitizer(200)

	assert.Equal(t, "经济报告", s.Folder("经济报告"))
	assert.Equal(t, "中国地方_公共数据_开放利用报告_55页", s.Folder("中国地方【公共数据】开放利用报告（55页）"))
	assert.Equal(t, "AI_Robotics", s.Folder("AI & Robotics"))
	assert.Equal(t, "unnamed", s.Folder("---"))
}

func TestFilenameSanitizer_Truncates(t *testing.T) {
	s := NewFilenameSanitizer(20)

	got := s.File(strings.Repeat("文件名", 50) + ".pdf")
	assert.Equal(t, 20, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, ".pdf"))

	assert.Equal(t, 20, utf8.RuneCountInString(s.Folder(strings.Repeat("文件名", 50))))
	assert.Equal(t, 5, utf8.RuneCountInString(s.Title(strings.Repeat("文件名", 50), 5)))
}

func TestExtractTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		input string
		want  string
	}{
		{"202512040933142933045.zip", "20251204"},
		{"20241225_report.zip", "20241225"},
		{"report_20241225.zip", "20241225"},
		{"no_timestamp.zip", "20260309"},
		{"99999999_report.zip", "20260309"},
		{"x20230102030405.zip", "20230102"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractTimestamp(tt.input, now))
		})
	}
}

func TestStoragePathService(t *testing.T) {
	svc := NewStoragePathService("/data/downloads", NewFilenameSanitizer(200))
	now := time.Unix(1735000000, 0)

	assert.Equal(t, "202504291200327477262.zip",
		svc.FileNameFromURL("https://ipo.ai-tag.cn/2025/04/202504291200327477262.zip", now))
	assert.Equal(t, "report_1735000000.zip", svc.FileNameFromURL("https://cdn.example.com/get?id=1", now))
	assert.Equal(t, "report_1735000000.zip", svc.FileNameFromURL("::bad", now))

	assert.Equal(t, "/data/downloads/经济报告/202504291200327477262.zip",
		svc.GeneratePath("经济报告", "202504291200327477262.zip"))
	assert.Equal(t, "经济报告/20250429报告.pdf",
		svc.MirrorKey("经济报告", "/data/downloads/经济报告/20250429报告.pdf"))
}

func TestFileChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.zip")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	sum, err := FileChecksum(path)
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", sum)

	_, err = FileChecksum(filepath.Join(t.TempDir(), "missing.zip"))
	assert.Error(t, err)
}
