// Package linkutil はユーザー・スタッフが投稿したURLの正規化機能を提供する。
//
// 正規化は以下の3段階で行われる:
//  1. 救済パース: 厳密なURLパースに失敗した場合、文字列中の最初の
//     http(s)://… 部分を抽出して再試行する。
//  2. リダイレクタ展開: SNSのリンクシムや検索エンジンのクリック追跡など、
//     既知のラッパーホストを検出し、指定クエリパラメータから真の遷移先を
//     取り出す。
//  3. 再構築: origin + path のみで組み立て直し、許可リストにあるホストの
//     指定パラメータだけを保持する。
//
// Normalizeは入力がどれほど壊れていてもpanicやエラーを返さず、
// 救済不能な場合は入力をそのまま返す（ベストエフォート）。
package linkutil

import (
	"log/slog"
	"net/url"
	"regexp"
	"strings"
)

// redirector は既知のリダイレクト/トラッキングホストの定義。
// ホストパターン・抽出パラメータ・デコード要否の閉じたテーブルとして表現し、
// リダイレクタの追加をコード変更ではなくデータ変更にする。
type redirector struct {
	host       string // 完全一致するホスト名
	pathPrefix string // 空でない場合、パスがこのプレフィックスに一致する必要がある
	param      string // 真の遷移先を格納するクエリパラメータ名
	decode     bool   // パラメータ値に追加のURLデコードが必要か
}

// redirectors は固定優先順で評価されるリダイレクタテーブル。
// 先に一致したエントリが勝ち、以降は評価されない。
var redirectors = []redirector{
	// Facebookリンクシム: https://l.facebook.com/l.php?u=<encoded>
	{host: "l.facebook.com", param: "u", decode: true},
	{host: "lm.facebook.com", param: "u", decode: true},
	// Tumblrクリックトラッカー: https://t.umblr.com/redirect?z=<encoded>
	{host: "t.umblr.com", param: "z", decode: true},
	// Googleクリックスルー: https://www.google.com/url?q=<encoded>
	{host: "www.google.com", pathPrefix: "/url", param: "q", decode: true},
	// 汎用オープンリダイレクタ: https://href.li/?url=<encoded>
	{host: "href.li", param: "url", decode: false},
}

// allowedParams はクエリパラメータを1つだけ保持するホストの許可リスト。
// ホスト名のサフィックス一致で照合する。
var allowedParams = map[string]string{
	// アプリストアのアプリID
	"play.google.com": "id",
	// 海外キューブベンダーの商品ID
	"item.taobao.com": "id",
}

// urlPattern は周辺テキストに埋め込まれたURLを救済抽出するためのパターン。
var urlPattern = regexp.MustCompile(`https?://[^\s"'<>]+`)

// maxUnwrap はリダイレクタ展開の上限回数。
// 相互にラップし合うURLでも正規化が必ず停止することを保証する。
const maxUnwrap = 5

// Normalize は投稿されたリンク文字列を正規化して返す。
// 救済不能な入力に対しては警告をログに出力し、入力をそのまま返す。
// 冪等: Normalize(Normalize(s)) == Normalize(s) が常に成り立つ。
func Normalize(rawLink string) string {
	u, ok := parseOrSalvage(rawLink)
	if !ok {
		slog.Warn("正規化できないリンクをそのまま返します",
			slog.String("raw_link", rawLink),
		)
		return rawLink
	}

	// リダイレクタ展開（上限付きループ）
	for i := 0; i < maxUnwrap; i++ {
		dest, unwrapped := unwrapRedirector(u)
		if !unwrapped {
			break
		}
		u = dest
	}

	return rebuild(u)
}

// parseOrSalvage は厳密パースを試み、失敗時は文字列中のURL部分を抽出して再試行する。
func parseOrSalvage(raw string) (*url.URL, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err == nil && isHTTPURL(u) {
		return u, true
	}

	// 周辺テキストに埋め込まれたURLを抽出して再試行
	match := urlPattern.FindString(raw)
	if match == "" {
		return nil, false
	}
	u, err = url.Parse(match)
	if err != nil || !isHTTPURL(u) {
		return nil, false
	}
	return u, true
}

// isHTTPURL はパース結果がホストを持つhttp(s) URLかを検証する。
func isHTTPURL(u *url.URL) bool {
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// unwrapRedirector はURLが既知のリダイレクタに一致する場合、
// 指定パラメータから真の遷移先を取り出して返す。
// 一致しない場合や遷移先が取り出せない場合は第2戻り値がfalseになる。
func unwrapRedirector(u *url.URL) (*url.URL, bool) {
	host := strings.ToLower(u.Hostname())

	for _, r := range redirectors {
		if host != r.host {
			continue
		}
		if r.pathPrefix != "" && !strings.HasPrefix(u.Path, r.pathPrefix) {
			continue
		}

		target := u.Query().Get(r.param)
		if target == "" {
			return nil, false
		}
		if r.decode && strings.Contains(target, "%") {
			// url.Query()で1回デコード済みだが、二重エンコードされた
			// リンクシムの値が残っている場合はもう1回デコードする
			if decoded, err := url.QueryUnescape(target); err == nil {
				target = decoded
			}
		}

		dest, err := url.Parse(target)
		if err != nil || !isHTTPURL(dest) {
			return nil, false
		}
		return dest, true
	}

	return nil, false
}

// rebuild はURLを scheme://host + path のみで組み立て直す。
// 許可リストに一致するホストの場合のみ指定パラメータを1つ保持する。
// フラグメントは常に破棄される。
func rebuild(u *url.URL) string {
	clean := &url.URL{
		Scheme: u.Scheme,
		Host:   u.Host,
		Path:   u.Path,
	}

	if param, ok := allowedParamFor(u.Hostname()); ok {
		if v := u.Query().Get(param); v != "" {
			q := url.Values{}
			q.Set(param, v)
			clean.RawQuery = q.Encode()
		}
	}

	return clean.String()
}

// allowedParamFor はホスト名に対応する保持対象パラメータを返す。
// 許可リストのエントリとはサフィックス一致で照合する。
func allowedParamFor(host string) (string, bool) {
	lower := strings.ToLower(host)
	for suffix, param := range allowedParams {
		if lower == suffix || strings.HasSuffix(lower, "."+suffix) {
			return param, true
		}
	}
	return "", false
}
