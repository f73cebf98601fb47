package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"
)

func TestReconcileCSV_UTF8WithBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Asset description,Is Fixed Assets,Value (CNY)\n\"  Oscilloscope \",是,99.9\n,y,1\n")...)
	res, err := ReconcileCSV(data)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ParsedRows)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "Oscilloscope", res.Rows[0].GroupKey)
	assert.True(t, *res.Rows[0].Fields.IsFixedAssets)
	assert.Equal(t, 99.9, *res.Rows[0].Fields.ValueCNY)
	assert.Empty(t, res.ImagesByRowIndex)
	assert.Zero(t, res.ImagesFound)
}

func TestReconcileCSV_GB18030(t *testing.T) {
	enc, err := simplifiedchinese.GB18030.NewEncoder().String("Asset description,Is Fixed Assets,location\n示波器,否,实验室\n")
	require.NoError(t, err)

	res, err := ReconcileCSV([]byte(enc))
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "示波器", res.Rows[0].GroupKey)
	assert.False(t, *res.Rows[0].Fields.IsFixedAssets)
	assert.Equal(t, "实验室", *res.Rows[0].Fields.Location)
}

func TestReconcileCSV_SkippedRowsKeepSheetIndex(t *testing.T) {
	res, err := ReconcileCSV([]byte("Asset description,Remarks\n,x\n  Oscilloscope  ,y\n"))
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	// 資産名の無い1行目も番号を消費する
	assert.Equal(t, 1, res.Rows[0].SourceRowIndex)
	assert.Equal(t, "y", *res.Rows[0].Fields.Remarks)
}
