package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/TSYF/ard-lambda-authorizer/lambda/identity"
	"github.com/TSYF/ard-lambda-authorizer/lambda/profile"
	"github.com/TSYF/ard-lambda-authorizer/lambda/testutil"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const TestTableName = "UserProfiles_AuthorizerTest"

var testDDBClient *dynamodb.Client
var testAuthorizer *Authorizer
var testMethodArn string

// スタブ検証器: "invalid_" で始まるトークンは検証失敗、それ以外はトークンをそのままsubとして返す
func stubVerifier() identity.Verifier {
	return identity.VerifierFunc(func(ctx context.Context, rawToken string) (string, error) {
		if strings.HasPrefix(rawToken, "invalid_") {
			return "", errors.New("signature mismatch")
		}
		return rawToken, nil
	})
}

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	testMethodArn, err = testutil.TestMethodArn()
	if err != nil {
		fmt.Printf("Failed to get test method ARN: %v\n", err)
		os.Exit(1)
	}

	testDDBClient, err = testutil.NewDynamoDBClient(ctx)
	if err != nil {
		fmt.Printf("Failed to create DynamoDB client: %v\n", err)
		os.Exit(1)
	}

	// テスト用Authorizerを作成（DIパターン）
	testAuthorizer = &Authorizer{
		Verifier: stubVerifier(),
		Profiles: &profile.Store{
			TableName: TestTableName,
			Client:    testDDBClient,
		},
	}

	if err := testutil.EnsureTable(ctx, testDDBClient, testutil.NewProfileTableSchema(TestTableName)); err != nil {
		fmt.Printf("Failed to setup test table: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	testutil.DeleteTable(ctx, testDDBClient, TestTableName)

	os.Exit(code)
}

// ヘルパー関数: 全メソッド・全パスを指すワイルドカードARN
func wildcardArn(t *testing.T) string {
	arn, err := testutil.TestMethodArnWithPath("*", "/*")
	require.NoError(t, err)
	return arn
}

func Test_MethodARNが正しく分解されること(t *testing.T) {
	tests := []struct {
		name string
		arn  string
		want methodARNParts
		ok   bool
	}{
		{
			name: "標準的なMethod ARN",
			arn:  "arn:aws:execute-api:ap-northeast-1:123456789012:abc123/test/GET/stores",
			want: methodARNParts{Region: "ap-northeast-1", AccountID: "123456789012", RestAPIID: "abc123", Stage: "test"},
			ok:   true,
		},
		{
			name: "パスが深いARN",
			arn:  "arn:aws:execute-api:us-east-1:123456789012:xyz789/prod/POST/stores/123/orders",
			want: methodARNParts{Region: "us-east-1", AccountID: "123456789012", RestAPIID: "xyz789", Stage: "prod"},
			ok:   true,
		},
		{name: "execute-api以外のARN", arn: "arn:aws:s3:::bucket/key", ok: false},
		{name: "ステージがないARN", arn: "arn:aws:execute-api:us-east-1:123456789012:abc123", ok: false},
		{name: "空文字列", arn: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts, ok := parseMethodARN(tt.arn)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, parts)
			}
		})
	}
}

func Test_空トークンの場合は匿名ユーザーとしてDenyを返すこと(t *testing.T) {
	event := events.APIGatewayCustomAuthorizerRequest{
		AuthorizationToken: "",
		MethodArn:          testMethodArn,
	}

	resp, err := testAuthorizer.Handler(context.Background(), event)

	require.NoError(t, err)
	assert.Equal(t, "anonymous", resp.PrincipalID)
	require.Len(t, resp.PolicyDocument.Statement, 1)
	assert.Equal(t, "Deny", resp.PolicyDocument.Statement[0].Effect)
	assert.Contains(t, resp.PolicyDocument.Statement[0].Resource, wildcardArn(t))
	assert.Equal(t, "missing_token", resp.Context["reason"])
}

func Test_検証に失敗したトークンの場合はDenyを返すこと(t *testing.T) {
	event := events.APIGatewayCustomAuthorizerRequest{
		AuthorizationToken: "Bearer invalid_" + testutil.GenerateUniqueID("token"),
		MethodArn:          testMethodArn,
	}

	resp, err := testAuthorizer.Handler(context.Background(), event)

	require.NoError(t, err)
	assert.Equal(t, "anonymous", resp.PrincipalID)
	assert.Equal(t, "Deny", resp.PolicyDocument.Statement[0].Effect)
	assert.Equal(t, "invalid_token", resp.Context["reason"])
}

func Test_プロファイルが存在しない場合はDenyを返すこと(t *testing.T) {
	userID := testutil.GenerateUniqueID("notfound")

	event := events.APIGatewayCustomAuthorizerRequest{
		AuthorizationToken: userID,
		MethodArn:          testMethodArn,
	}

	resp, err := testAuthorizer.Handler(context.Background(), event)

	require.NoError(t, err)
	assert.Equal(t, userID, resp.PrincipalID)
	assert.Equal(t, "Deny", resp.PolicyDocument.Statement[0].Effect)
	assert.Equal(t, "profile_not_found", resp.Context["reason"])
}

func Test_無効化されたユーザーの場合はDenyを返すこと(t *testing.T) {
	ctx := context.Background()
	userID := testutil.GenerateUniqueID("inactive")
	require.NoError(t, testutil.PutProfile(ctx, testDDBClient, TestTableName, userID, false, false))
	defer testutil.DeleteProfile(ctx, testDDBClient, TestTableName, userID)

	event := events.APIGatewayCustomAuthorizerRequest{
		AuthorizationToken: userID,
		MethodArn:          testMethodArn,
	}

	resp, err := testAuthorizer.Handler(ctx, event)

	require.NoError(t, err)
	assert.Equal(t, userID, resp.PrincipalID)
	assert.Equal(t, "Deny", resp.PolicyDocument.Statement[0].Effect)
	assert.Equal(t, "profile_inactive", resp.Context["reason"])
}

func Test_一般ユーザーの場合はGETのみ許可されること(t *testing.T) {
	ctx := context.Background()
	userID := testutil.GenerateUniqueID("member")
	require.NoError(t, testutil.PutProfile(ctx, testDDBClient, TestTableName, userID, false, true))
	defer testutil.DeleteProfile(ctx, testDDBClient, TestTableName, userID)

	event := events.APIGatewayCustomAuthorizerRequest{
		AuthorizationToken: userID,
		MethodArn:          testMethodArn,
	}

	resp, err := testAuthorizer.Handler(ctx, event)

	require.NoError(t, err)
	assert.Equal(t, userID, resp.PrincipalID)
	require.Len(t, resp.PolicyDocument.Statement, 1)
	assert.Equal(t, "Allow", resp.PolicyDocument.Statement[0].Effect)

	readOnlyArn, err := testutil.TestMethodArnWithPath("GET", "/*")
	require.NoError(t, err)
	assert.Equal(t, []string{readOnlyArn}, resp.PolicyDocument.Statement[0].Resource)

	assert.Equal(t, userID, resp.Context["userId"])
	assert.Equal(t, false, resp.Context["isAdmin"])
}

func Test_管理者の場合は全メソッドが許可されること(t *testing.T) {
	ctx := context.Background()
	userID := testutil.GenerateUniqueID("admin")
	require.NoError(t, testutil.PutProfile(ctx, testDDBClient, TestTableName, userID, true, true))
	defer testutil.DeleteProfile(ctx, testDDBClient, TestTableName, userID)

	event := events.APIGatewayCustomAuthorizerRequest{
		AuthorizationToken: userID,
		MethodArn:          testMethodArn,
	}

	resp, err := testAuthorizer.Handler(ctx, event)

	require.NoError(t, err)
	require.Len(t, resp.PolicyDocument.Statement, 1)
	assert.Equal(t, "Allow", resp.PolicyDocument.Statement[0].Effect)
	assert.Equal(t, []string{wildcardArn(t)}, resp.PolicyDocument.Statement[0].Resource)
	assert.Equal(t, true, resp.Context["isAdmin"])
}

func Test_Bearerプレフィックス付きトークンが正しく処理されること(t *testing.T) {
	ctx := context.Background()
	// 注意: トークン自体に "bearer" を含まないようにする（除去ロジックとの競合を避ける）
	userID := testutil.GenerateUniqueID("token")
	require.NoError(t, testutil.PutProfile(ctx, testDDBClient, TestTableName, userID, false, true))
	defer testutil.DeleteProfile(ctx, testDDBClient, TestTableName, userID)

	tests := []struct {
		name  string
		token string
	}{
		{"Bearerスペース区切りでも認証されること", "Bearer " + userID},
		{"bearer小文字でも認証されること", "bearer " + userID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := events.APIGatewayCustomAuthorizerRequest{
				AuthorizationToken: tt.token,
				MethodArn:          testMethodArn,
			}

			resp, err := testAuthorizer.Handler(ctx, event)

			require.NoError(t, err)
			assert.Equal(t, userID, resp.PrincipalID)
			assert.Equal(t, "Allow", resp.PolicyDocument.Statement[0].Effect)
			assert.Equal(t, userID, resp.Context["userId"])
		})
	}
}
