package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/TSYF/ard-lambda-authorizer/lambda/identity"
	"github.com/TSYF/ard-lambda-authorizer/lambda/policy"
	"github.com/TSYF/ard-lambda-authorizer/lambda/profile"
)

// methodARNParts はTOKENオーソライザーに渡されるMethod ARNの分解結果
type methodARNParts struct {
	Region    string
	AccountID string
	RestAPIID string
	Stage     string
}

// parseMethodARN は arn:aws:execute-api:<region>:<account>:<apiId>/<stage>/<verb>/<path>
// 形式のARNを分解する
func parseMethodARN(arn string) (methodARNParts, bool) {
	sections := strings.SplitN(arn, ":", 6)
	if len(sections) < 6 || sections[2] != "execute-api" {
		return methodARNParts{}, false
	}

	gateway := strings.SplitN(sections[5], "/", 3)
	if len(gateway) < 2 {
		return methodARNParts{}, false
	}

	return methodARNParts{
		Region:    sections[3],
		AccountID: sections[4],
		RestAPIID: gateway[0],
		Stage:     gateway[1],
	}, true
}

// Authorizer は認可処理の依存をまとめたもの。
// テストから検証器とストアを差し替えられるようにしておく
type Authorizer struct {
	Verifier identity.Verifier
	Profiles *profile.Store
}

// newBuilder はMethod ARNからリージョン・アカウント・API・ステージを
// 引き継いだBuilderを返す。ARNが読めない場合はデフォルト値のままにする
func (a *Authorizer) newBuilder(principalID, methodArn string) *policy.Builder {
	b := policy.New(principalID, "")
	if parts, ok := parseMethodARN(methodArn); ok {
		b.Region = parts.Region
		b.AccountID = parts.AccountID
		b.RestAPIID = parts.RestAPIID
		b.Stage = parts.Stage
	}
	return b
}

// denyAll は理由付きの全拒否ポリシーを返す
func (a *Authorizer) denyAll(principalID, methodArn, reason string) (policy.Response, error) {
	b := a.newBuilder(principalID, methodArn)
	if reason != "" {
		b.Context = map[string]interface{}{"reason": reason}
	}
	if err := b.DenyAllMethods(); err != nil {
		return policy.Response{}, err
	}
	return b.Build()
}

// Handler はトークン検証 → プロファイル参照 → ポリシー生成の順で認可判定を行う。
// 検証や参照の失敗はエラーではなく拒否ポリシーとして返す
func (a *Authorizer) Handler(ctx context.Context, event events.APIGatewayCustomAuthorizerRequest) (policy.Response, error) {
	token := identity.ExtractBearer(event.AuthorizationToken)
	if token == "" {
		log.Printf("[Authorizer] Token is empty, returning Deny")
		return a.denyAll("anonymous", event.MethodArn, "missing_token")
	}

	userID, err := a.Verifier.Verify(ctx, token)
	if err != nil {
		log.Printf("[Authorizer] Token verification failed: %v", err)
		return a.denyAll("anonymous", event.MethodArn, "invalid_token")
	}

	prof, err := a.Profiles.Get(ctx, userID)
	if errors.Is(err, profile.ErrNotFound) {
		log.Printf("[Authorizer] Profile not found for %q, returning Deny", userID)
		return a.denyAll(userID, event.MethodArn, "profile_not_found")
	}
	if err != nil {
		log.Printf("[Authorizer] Profile lookup failed: %v", err)
		return a.denyAll(userID, event.MethodArn, "profile_lookup_failed")
	}

	if !prof.Active {
		log.Printf("[Authorizer] Profile %q is inactive, returning Deny", userID)
		return a.denyAll(userID, event.MethodArn, "profile_inactive")
	}

	b := a.newBuilder(userID, event.MethodArn)
	b.Context = map[string]interface{}{
		"userId":  userID,
		"isAdmin": prof.IsAdmin,
	}

	if prof.IsAdmin {
		// 管理者は全メソッドを許可
		if err := b.AllowAllMethods(); err != nil {
			return policy.Response{}, err
		}
	} else {
		// 一般ユーザーは参照系のみ許可
		if err := b.AllowMethod(policy.GET, "/*"); err != nil {
			return policy.Response{}, err
		}
	}

	log.Printf("[Authorizer] Returning Allow for %q (admin=%v)", userID, prof.IsAdmin)
	return b.Build()
}

// newAuthorizer は環境変数から本番用のAuthorizerを組み立てる
func newAuthorizer(ctx context.Context) (*Authorizer, error) {
	table := os.Getenv("PROFILES_TABLE")
	if table == "" {
		table = "UserProfiles"
	}

	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}

	// LocalStack環境ではDynamoDBのエンドポイントを差し替える。
	// Lambda自体がLocalStack内で動くため http://<host>:4566 へ向ける必要がある
	if host := os.Getenv("LOCALSTACK_HOSTNAME"); host != "" {
		endpoint := fmt.Sprintf("http://%s:4566", host)
		opts = append(opts, config.WithEndpointResolverWithOptions(
			aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				if service == dynamodb.ServiceID {
					return aws.Endpoint{URL: endpoint, SigningRegion: region}, nil
				}
				return aws.Endpoint{}, &aws.EndpointNotFoundError{}
			}),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &Authorizer{
		Verifier: identity.NewOIDCVerifier(
			os.Getenv("IDENTITY_ISSUER_URL"),
			os.Getenv("IDENTITY_CLIENT_ID"),
		),
		Profiles: &profile.Store{
			TableName: table,
			Client:    dynamodb.NewFromConfig(cfg),
		},
	}, nil
}

func main() {
	auth, err := newAuthorizer(context.Background())
	if err != nil {
		log.Fatalf("[Authorizer] Failed to initialize: %v", err)
	}
	lambda.Start(auth.Handler)
}
