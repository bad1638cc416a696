package newsletter

import (
	"fmt"
	"net/url"
	"strings"
)

// LinkBuilder は配信メールに埋め込む配信停止URLとヘッダー値を組み立てる。
// メール配信側は購読登録レスポンスで受け取った値をそのまま使用する。
type LinkBuilder struct {
	baseURL string
}

// NewLinkBuilder はLinkBuilderを生成する。baseURLの末尾スラッシュは取り除く。
func NewLinkBuilder(baseURL string) *LinkBuilder {
	return &LinkBuilder{baseURL: strings.TrimRight(baseURL, "/")}
}

// UnsubscribeLinks はトークンに対応する配信停止URLとメールヘッダー値の組。
type UnsubscribeLinks struct {
	// PageURL は配信停止ページのURL（人間が開く）。
	PageURL string
	// OneClickURL はメールクライアントがPOSTするワンクリック配信停止URL。
	OneClickURL string
	// ListUnsubscribe はList-Unsubscribeヘッダー値（RFC 2369）。
	ListUnsubscribe string
	// ListUnsubscribePost はList-Unsubscribe-Postヘッダー値（RFC 8058）。
	ListUnsubscribePost string
}

// Links はトークンから配信停止URLとヘッダー値の組を生成する。
func (b *LinkBuilder) Links(token string) UnsubscribeLinks {
	escaped := url.QueryEscape(token)
	oneClick := fmt.Sprintf("%s/api/email/unsubscribe/one-click?token=%s", b.baseURL, escaped)
	return UnsubscribeLinks{
		PageURL:             fmt.Sprintf("%s/api/email/unsubscribe?token=%s", b.baseURL, escaped),
		OneClickURL:         oneClick,
		ListUnsubscribe:     fmt.Sprintf("<%s>", oneClick),
		ListUnsubscribePost: "List-Unsubscribe=One-Click",
	}
}
