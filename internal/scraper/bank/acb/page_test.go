package acb

import (
	"strings"
	"testing"

	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/unicode/norm"
)

func TestDetectPage(t *testing.T) {
	tests := []struct {
		fixture string
		want    Page
	}{
		{"login", PageLogin},
		{"account_list", PageAccountList},
		{"detail_no_data", PageDetailNoData},
		{"detail_with_data", PageDetailWithData},
	}

	for _, tt := range tests {
		t.Run(tt.fixture, func(t *testing.T) {
			html := testutil.LoadFixture(t, "acb", tt.fixture)

			got, err := DetectPage(html)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectPage_PasswordFieldWins(t *testing.T) {
	html := testutil.LoadFixture(t, "acb", "account_list")
	html = strings.Replace(html, "</body>", `<input type="password" name="PassWord"></body>`, 1)

	got, err := DetectPage(html)

	require.NoError(t, err)
	assert.Equal(t, PageLogin, got)
}

func TestDetectPage_HeadingNormalization(t *testing.T) {
	base := testutil.LoadFixture(t, "acb", "account_list")

	t.Run("decomposed heading", func(t *testing.T) {
		html := strings.Replace(base, HeadingAccountInfo, norm.NFD.String(HeadingAccountInfo), 1)
		require.NotEqual(t, base, html)

		got, err := DetectPage(html)

		require.NoError(t, err)
		assert.Equal(t, PageAccountList, got)
	})

	t.Run("extra whitespace", func(t *testing.T) {
		html := strings.Replace(base, "<h4>Thông tin tài khoản</h4>", "<h4>\n  Thông   tin\ttài khoản </h4>", 1)

		got, err := DetectPage(html)

		require.NoError(t, err)
		assert.Equal(t, PageAccountList, got)
	})

	t.Run("different heading", func(t *testing.T) {
		html := strings.Replace(base, "<h4>Thông tin tài khoản</h4>", "<h4>Thông tin tài khoản tiết kiệm</h4>", 1)

		got, err := DetectPage(html)

		require.NoError(t, err)
		assert.Equal(t, PageUnknown, got)
	})
}

func TestDetectPage_Unknown(t *testing.T) {
	got, err := DetectPage("<html><body><p>Hệ thống đang bảo trì</p></body></html>")

	require.NoError(t, err)
	assert.Equal(t, PageUnknown, got)
}
