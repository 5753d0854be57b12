// Package profile はDynamoDB上のユーザープロファイルを参照する。
package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ErrNotFound は指定したユーザーのプロファイルが存在しない場合のエラー
var ErrNotFound = errors.New("profile not found")

// Profile は認可判定に必要なユーザー属性
type Profile struct {
	UserID  string
	IsAdmin bool
	Active  bool
}

// Store はプロファイルテーブルへのアクセスをまとめたもの
type Store struct {
	TableName string
	Client    *dynamodb.Client
}

// Get はuserIdをキーにプロファイルを取得する。
// isAdmin未設定は一般ユーザー、active未設定は有効とみなす
func (s *Store) Get(ctx context.Context, userID string) (Profile, error) {
	out, err := s.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.TableName),
		Key: map[string]types.AttributeValue{
			"userId": &types.AttributeValueMemberS{Value: userID},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return Profile{}, fmt.Errorf("failed to get profile: %w", err)
	}

	if out.Item == nil {
		return Profile{}, ErrNotFound
	}

	p := Profile{UserID: userID, Active: true}
	if v, ok := out.Item["isAdmin"].(*types.AttributeValueMemberBOOL); ok {
		p.IsAdmin = v.Value
	}
	if v, ok := out.Item["active"].(*types.AttributeValueMemberBOOL); ok {
		p.Active = v.Value
	}
	return p, nil
}
