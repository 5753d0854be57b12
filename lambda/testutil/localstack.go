package testutil

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// GetAWSRegion は環境変数からAWSリージョンを取得する。
// AWS_REGION が設定されていない場合はエラーを返す
func GetAWSRegion() (string, error) {
	if region := os.Getenv("AWS_REGION"); region != "" {
		return region, nil
	}
	return "", fmt.Errorf("AWS_REGION environment variable is not set")
}

// NewDynamoDBClient はテスト用のDynamoDBクライアントを返す。
// LOCALSTACK_HOSTNAME が設定されている場合はLocalStackのエンドポイントへ向ける
func NewDynamoDBClient(ctx context.Context) (*dynamodb.Client, error) {
	opts := []func(*config.LoadOptions) error{}

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

	return dynamodb.NewFromConfig(cfg), nil
}
