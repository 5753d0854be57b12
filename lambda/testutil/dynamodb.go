// Package testutil はLocalStack上のDynamoDBを使うテストの共通処理を提供する。
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DefaultWaitTimeout はテーブル作成・削除の待機タイムアウト
const DefaultWaitTimeout = 30 * time.Second

// TableSchema はテスト用テーブルの定義
type TableSchema struct {
	TableName   string
	KeySchema   []types.KeySchemaElement
	Attributes  []types.AttributeDefinition
	BillingMode types.BillingMode
}

// NewSimpleTableSchema は単一のハッシュキーを持つテーブルスキーマを作成する
func NewSimpleTableSchema(tableName, keyName string, keyType types.ScalarAttributeType) TableSchema {
	return TableSchema{
		TableName: tableName,
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(keyName), KeyType: types.KeyTypeHash},
		},
		Attributes: []types.AttributeDefinition{
			{AttributeName: aws.String(keyName), AttributeType: keyType},
		},
		BillingMode: types.BillingModePayPerRequest,
	}
}

// NewProfileTableSchema はuserIdをキーとするプロファイルテーブルのスキーマを作成する
func NewProfileTableSchema(tableName string) TableSchema {
	return NewSimpleTableSchema(tableName, "userId", types.ScalarAttributeTypeS)
}

// EnsureTable はテーブルを作成してアクティブになるまで待機する。
// 同名のテーブルが残っていた場合は削除してから作り直す
func EnsureTable(ctx context.Context, client *dynamodb.Client, schema TableSchema) error {
	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(schema.TableName),
	})
	if err == nil {
		if _, err := client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
			TableName: aws.String(schema.TableName),
		}); err != nil {
			return fmt.Errorf("failed to delete existing table: %w", err)
		}
		waiter := dynamodb.NewTableNotExistsWaiter(client)
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(schema.TableName),
		}, DefaultWaitTimeout); err != nil {
			return fmt.Errorf("failed to wait for table deletion: %w", err)
		}
	}

	billingMode := schema.BillingMode
	if billingMode == "" {
		billingMode = types.BillingModePayPerRequest
	}

	if _, err := client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:            aws.String(schema.TableName),
		AttributeDefinitions: schema.Attributes,
		KeySchema:            schema.KeySchema,
		BillingMode:          billingMode,
	}); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(schema.TableName),
	}, DefaultWaitTimeout); err != nil {
		return fmt.Errorf("failed to wait for table creation: %w", err)
	}

	return nil
}

// DeleteTable はテーブルを削除する。後片付け用なのでエラーは無視する
func DeleteTable(ctx context.Context, client *dynamodb.Client, tableName string) {
	client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(tableName),
	})
}

// PutItem はアイテムを投入する
func PutItem(ctx context.Context, client *dynamodb.Client, tableName string, item map[string]types.AttributeValue) error {
	_, err := client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(tableName),
		Item:      item,
	})
	return err
}

// DeleteItem はアイテムを削除する
func DeleteItem(ctx context.Context, client *dynamodb.Client, tableName string, key map[string]types.AttributeValue) error {
	_, err := client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(tableName),
		Key:       key,
	})
	return err
}

// PutProfile はプロファイルテーブルへテスト用ユーザーを投入する
func PutProfile(ctx context.Context, client *dynamodb.Client, tableName, userID string, isAdmin, active bool) error {
	return PutItem(ctx, client, tableName, map[string]types.AttributeValue{
		"userId":  &types.AttributeValueMemberS{Value: userID},
		"isAdmin": &types.AttributeValueMemberBOOL{Value: isAdmin},
		"active":  &types.AttributeValueMemberBOOL{Value: active},
	})
}

// DeleteProfile はプロファイルテーブルからテスト用ユーザーを削除する
func DeleteProfile(ctx context.Context, client *dynamodb.Client, tableName, userID string) error {
	return DeleteItem(ctx, client, tableName, map[string]types.AttributeValue{
		"userId": &types.AttributeValueMemberS{Value: userID},
	})
}
