package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"
)

var testMetadata = []string{
	"标题: 评论数据集\n",
	"来源: bilibili\n",
	"导出时间: 2025-09-01\n",
	"\n",
	"说明,含逗号的行\n",
	"---\n",
}

const testTable = "评论内容,点赞数,标注\n" +
	"新国标挺好的,12,1\n" +
	"\"带,逗号的评论\",3,\n" +
	"\"多行\n评论\",0,2\n" +
	"   ,5,\n"

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func metadataText() string {
	s := ""
	for _, line := range testMetadata {
		s += line
	}
	return s
}

func TestLoad_UTF8WithBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte(metadataText()+testTable)...)
	path := writeFile(t, "data.csv", data)

	ds, enc, err := Load(path, 6)
	require.NoError(t, err)

	assert.Equal(t, EncodingUTF8BOM, enc)
	assert.Equal(t, testMetadata, ds.Metadata)
	assert.Equal(t, []string{"评论内容", "点赞数", "标注"}, ds.Columns())
	assert.Equal(t, 4, ds.Len())

	v, err := ds.Get(1, "评论内容")
	require.NoError(t, err)
	assert.Equal(t, "带,逗号的评论", v)

	v, err = ds.Get(2, "评论内容")
	require.NoError(t, err)
	assert.Equal(t, "多行\n评论", v)

	v, err = ds.Get(0, "标注")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestLoad_GB18030Fallback(t *testing.T) {
	encoded, err := simplifiedchinese.GB18030.NewEncoder().Bytes([]byte(metadataText() + testTable))
	require.NoError(t, err)
	path := writeFile(t, "gb.csv", encoded)

	ds, enc, err := Load(path, 6)
	require.NoError(t, err)

	assert.Equal(t, EncodingGB18030, enc)
	assert.Equal(t, testMetadata, ds.Metadata)

	v, err := ds.Get(0, "评论内容")
	require.NoError(t, err)
	assert.Equal(t, "新国标挺好的", v)
}

func TestLoad_Undecodable(t *testing.T) {
	path := writeFile(t, "bad.csv", []byte{0xFF, 0xFF, 0xFF, '\n'})

	_, _, err := Load(path, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestLoad_MetadataTooShort(t *testing.T) {
	path := writeFile(t, "short.csv", []byte("one\ntwo\n"))

	_, _, err := Load(path, 6)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMetadataTooShort))
}

func TestLoad_NoHeader(t *testing.T) {
	path := writeFile(t, "noheader.csv", []byte(metadataText()))

	_, _, err := Load(path, 6)
	require.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "absent.csv"), 6)
	require.Error(t, err)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := writeFile(t, "data.csv", []byte(metadataText()+testTable))

	ds, _, err := Load(path, 6)
	require.NoError(t, err)
	columns, rows := ds.Snapshot()

	require.NoError(t, Save(path, ds))

	reloaded, enc, err := Load(path, 6)
	require.NoError(t, err)
	assert.Equal(t, EncodingUTF8BOM, enc)
	assert.Equal(t, testMetadata, reloaded.Metadata)

	gotColumns, gotRows := reloaded.Snapshot()
	assert.Equal(t, columns, gotColumns)
	assert.Equal(t, rows, gotRows)

	_, err = os.Stat(path + tempSuffix)
	assert.True(t, os.IsNotExist(err), "temp file must not remain after save")
}

func TestSave_ByteIdenticalAfterSecondSave(t *testing.T) {
	path := writeFile(t, "data.csv", []byte(metadataText()+testTable))

	ds, _, err := Load(path, 6)
	require.NoError(t, err)
	require.NoError(t, Save(path, ds))

	first, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xEF, 0xBB, 0xBF}, first[:3], "saved file starts with a BOM")

	reloaded, _, err := Load(path, 6)
	require.NoError(t, err)
	require.NoError(t, Save(path, reloaded))

	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSave_CreatesMissingTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.csv")
	ds := New([]string{"meta\n"}, []string{"a", "b"}, [][]string{{"1", "2"}})

	require.NoError(t, Save(path, ds))

	reloaded, _, err := Load(path, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"meta\n"}, reloaded.Metadata)
	assert.Equal(t, 1, reloaded.Len())
}

func TestSave_UnwritableDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-dir", "data.csv")
	ds := New(nil, []string{"a"}, nil)

	require.Error(t, Save(path, ds))
}

func TestDataset_EnsureColumn(t *testing.T) {
	ds := New(nil, []string{"评论内容"}, [][]string{{"a"}, {"b"}})

	assert.False(t, ds.HasColumn("标注"))
	assert.True(t, ds.EnsureColumn("标注"))
	assert.False(t, ds.EnsureColumn("标注"), "second call is a no-op")

	assert.Equal(t, []string{"评论内容", "标注"}, ds.Columns())
	for i := 0; i < ds.Len(); i++ {
		v, err := ds.Get(i, "标注")
		require.NoError(t, err)
		assert.True(t, IsBlank(v))
	}
}

func TestDataset_RaggedRowsPadded(t *testing.T) {
	ds := New(nil, []string{"a", "b", "c"}, [][]string{{"1"}, {"1", "2", "3"}})

	v, err := ds.Get(0, "c")
	require.NoError(t, err)
	assert.Equal(t, "", v)
}

func TestDataset_GetSetErrors(t *testing.T) {
	ds := New(nil, []string{"a"}, [][]string{{"1"}})

	_, err := ds.Get(0, "missing")
	assert.True(t, errors.Is(err, ErrMissingColumn))

	assert.Error(t, ds.Set(5, "a", "x"))
	assert.Error(t, ds.Set(-1, "a", "x"))

	require.NoError(t, ds.Set(0, "a", "x"))
	v, _ := ds.Get(0, "a")
	assert.Equal(t, "x", v)
}

func TestDataset_ConcurrentWritesAndSnapshots(t *testing.T) {
	rows := make([][]string, 200)
	for i := range rows {
		rows[i] = []string{"text", ""}
	}
	ds := New(nil, []string{"in", "out"}, rows)

	var wg sync.WaitGroup
	for i := 0; i < len(rows); i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_ = ds.Set(idx, "out", "1")
			if idx%20 == 0 {
				_, _ = ds.Snapshot()
			}
		}(i)
	}
	wg.Wait()

	_, snap := ds.Snapshot()
	for i, row := range snap {
		assert.Equal(t, "1", row[1], "row %d", i)
	}
}

func TestIsBlank(t *testing.T) {
	assert.True(t, IsBlank(""))
	assert.True(t, IsBlank(" \t\n"))
	assert.False(t, IsBlank("0"))
}
