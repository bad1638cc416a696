// Package security はアプリケーションのセキュリティ機能を提供する。
//
// InputSanitizerService は購読者が入力した表示名などのテキストをサニタイズし、
// 保存データを経由したXSS攻撃からAPI利用者を保護する。
// bluemondayのStrictPolicyを使用し、HTMLタグをすべて除去する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// InputSanitizerService は入力テキストのサニタイズ機能のインターフェースを定義する。
// 購読者の氏名など、APIレスポンスにそのまま含められる自由入力フィールドに使用する。
type InputSanitizerService interface {
	// Sanitize は入力テキストからHTMLタグをすべて除去し、前後の空白を取り除いて返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(input string) string
}

// inputSanitizer はInputSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type inputSanitizer struct {
	policy *bluemonday.Policy
}

// NewInputSanitizer はInputSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyはすべてのHTMLタグと属性を除去する。
// 購読者名はプレーンテキストとしてのみ扱うため、許可リストは不要。
func NewInputSanitizer() *inputSanitizer {
	return &inputSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力テキストからHTMLタグをすべて除去し、前後の空白を取り除いて返す。
func (s *inputSanitizer) Sanitize(input string) string {
	return strings.TrimSpace(s.policy.Sanitize(input))
}
