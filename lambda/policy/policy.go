// Package policy はAPI Gatewayカスタムオーソライザーが返す
// IAMポリシードキュメントを組み立てる。
package policy

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Verb はAPI Gatewayのメソッドに指定できるHTTPメソッド
type Verb string

const (
	// AllVerbs は全メソッドを対象とするワイルドカード
	AllVerbs Verb = "*"

	GET     Verb = "GET"
	POST    Verb = "POST"
	PUT     Verb = "PUT"
	PATCH   Verb = "PATCH"
	HEAD    Verb = "HEAD"
	DELETE  Verb = "DELETE"
	OPTIONS Verb = "OPTIONS"
)

// valid はAPI Gatewayが受け付けるメソッドかどうかを返す
func (v Verb) valid() bool {
	switch v {
	case AllVerbs, GET, POST, PUT, PATCH, HEAD, DELETE, OPTIONS:
		return true
	}
	return false
}

const (
	EffectAllow = "Allow"
	EffectDeny  = "Deny"

	// API Gateway呼び出しを表す固定アクション
	actionInvoke = "execute-api:Invoke"

	// DefaultVersion はIAMポリシードキュメントの固定バージョン
	DefaultVersion = "2012-10-17"
)

var (
	// ErrInvalidVerb は許可されていないHTTPメソッドが指定された場合のエラー
	ErrInvalidVerb = errors.New("invalid HTTP verb")
	// ErrInvalidResourcePath はリソースパスが文法に合わない場合のエラー
	ErrInvalidResourcePath = errors.New("invalid resource path")
	// ErrNoStatements はグラントが1つもない状態でBuildした場合のエラー
	ErrNoStatements = errors.New("no statements defined for policy document")
)

// リソースパスに使用できる文字の定義。
// 検証を弱められないよう、呼び出し側からの変更は許可しない
var resourcePathPattern = regexp.MustCompile(`^[/.a-zA-Z0-9\-*]+$`)

// Statement はポリシードキュメント内の1エントリ。
// Conditionを持てるようaws-lambda-goのIAMPolicyStatementは使わず独自に定義する
type Statement struct {
	Action    string                 `json:"Action"`
	Effect    string                 `json:"Effect"`
	Resource  []string               `json:"Resource"`
	Condition map[string]interface{} `json:"Condition,omitempty"`
}

// Document はゲートウェイが解釈するポリシードキュメント本体
type Document struct {
	Version   string      `json:"Version"`
	Statement []Statement `json:"Statement"`
}

// Response はオーソライザーの戻り値全体
type Response struct {
	PrincipalID    string                 `json:"principalId"`
	PolicyDocument Document               `json:"policyDocument"`
	Context        map[string]interface{} `json:"context,omitempty"`
}

// grant は1つのverb+pathに対する許可/拒否ルール。追加後は変更しない
type grant struct {
	resourceArn string
	conditions  map[string]interface{}
}

// Builder は1リクエスト分のグラントを集めてポリシードキュメントへ変換する。
// 1インスタンスは1回の認可判定専用で、Buildの後に再利用しないこと
type Builder struct {
	PrincipalID string
	AccountID   string

	// Build前に上書き可能な設定値
	RestAPIID string
	Region    string
	Stage     string
	Version   string

	// ゲートウェイ経由でバックエンドへ引き渡す任意の値
	Context map[string]interface{}

	allowGrants []grant
	denyGrants  []grant
}

// New はデフォルト値のBuilderを返す。
// RestAPIIDとStageはプレースホルダーなので呼び出し側で設定すること
func New(principalID, accountID string) *Builder {
	return &Builder{
		PrincipalID: principalID,
		AccountID:   accountID,
		RestAPIID:   "<<restApiId>>",
		Region:      "us-east-1",
		Stage:       "<<stage>>",
		Version:     DefaultVersion,
	}
}

// addGrant は全公開メソッドの土台。検証・ARN組み立て・リストへの追加のみでI/Oはしない
func (b *Builder) addGrant(effect string, verb Verb, resourcePath string, conditions map[string]interface{}) error {
	if !verb.valid() {
		return fmt.Errorf("%w: %q", ErrInvalidVerb, verb)
	}
	if !resourcePathPattern.MatchString(resourcePath) {
		return fmt.Errorf("%w: %q", ErrInvalidResourcePath, resourcePath)
	}

	cleaned := strings.TrimPrefix(resourcePath, "/")
	arn := fmt.Sprintf("arn:aws:execute-api:%s:%s:%s/%s/%s/%s",
		b.Region, b.AccountID, b.RestAPIID, b.Stage, verb, cleaned)

	g := grant{resourceArn: arn, conditions: conditions}
	if effect == EffectDeny {
		b.denyGrants = append(b.denyGrants, g)
	} else {
		b.allowGrants = append(b.allowGrants, g)
	}
	return nil
}

// AllowAllMethods は全メソッド・全パスを許可する
func (b *Builder) AllowAllMethods() error {
	return b.addGrant(EffectAllow, AllVerbs, "*", nil)
}

// DenyAllMethods は全メソッド・全パスを拒否する
func (b *Builder) DenyAllMethods() error {
	return b.addGrant(EffectDeny, AllVerbs, "*", nil)
}

// AllowMethod は指定したメソッドとパスを許可する
func (b *Builder) AllowMethod(verb Verb, resourcePath string) error {
	return b.addGrant(EffectAllow, verb, resourcePath, nil)
}

// DenyMethod は指定したメソッドとパスを拒否する
func (b *Builder) DenyMethod(verb Verb, resourcePath string) error {
	return b.addGrant(EffectDeny, verb, resourcePath, nil)
}

// AllowMethodWithConditions は条件付きで指定したメソッドとパスを許可する。
// 条件の中身はそのままConditionに載るだけで、Builderは解釈しない
func (b *Builder) AllowMethodWithConditions(verb Verb, resourcePath string, conditions map[string]interface{}) error {
	return b.addGrant(EffectAllow, verb, resourcePath, conditions)
}

// DenyMethodWithConditions は条件付きで指定したメソッドとパスを拒否する
func (b *Builder) DenyMethodWithConditions(verb Verb, resourcePath string, conditions map[string]interface{}) error {
	return b.addGrant(EffectDeny, verb, resourcePath, conditions)
}

// compileStatements はグラント列をステートメント列へ変換する。
// 条件なしのグラントは1つのステートメントに集約し、条件付きは専用のステートメントを割り当てる。
// 集約したステートメントは条件付きステートメントの後ろに置く
func compileStatements(effect string, grants []grant) []Statement {
	if len(grants) == 0 {
		return nil
	}

	statements := make([]Statement, 0, len(grants))
	merged := Statement{Action: actionInvoke, Effect: effect}

	for _, g := range grants {
		if len(g.conditions) == 0 {
			merged.Resource = append(merged.Resource, g.resourceArn)
			continue
		}
		statements = append(statements, Statement{
			Action:    actionInvoke,
			Effect:    effect,
			Resource:  []string{g.resourceArn},
			Condition: g.conditions,
		})
	}

	if len(merged.Resource) > 0 {
		statements = append(statements, merged)
	}
	return statements
}

// Build は集めたグラントからポリシードキュメントを生成する。
// Allow側のステートメントが必ずDeny側より前に並ぶ。Builderの状態は変更しない
func (b *Builder) Build() (Response, error) {
	if len(b.allowGrants) == 0 && len(b.denyGrants) == 0 {
		return Response{}, ErrNoStatements
	}

	statements := append(compileStatements(EffectAllow, b.allowGrants),
		compileStatements(EffectDeny, b.denyGrants)...)

	return Response{
		PrincipalID: b.PrincipalID,
		PolicyDocument: Document{
			Version:   b.Version,
			Statement: statements,
		},
		Context: b.Context,
	}, nil
}
