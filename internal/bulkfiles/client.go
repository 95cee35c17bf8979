//
// Date: 2026-02-15
// Copyright (c) 2026. All rights reserved.
//

package bulkfiles

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Default S3-compatible endpoint for bulk option trade files.
const defaultEndpoint = "https://files.polygon.io"

// Default bucket name where all bulk files are stored.
const defaultBucket = "flatfiles"

// Bulk option trade files live under this asset/data-type prefix, one
// gzipped CSV per trading day.
const (
	assetPrefix = "us_options_opra"
	dataType    = "trades_v1"
)

// Header is the column header of every daily trade file. A missing day
// downloads as a blank file carrying only this header.
const Header = "ticker,conditions,correction,exchange,price,sip_timestamp,size"

// FileInfo represents metadata about a single file stored in S3.
type FileInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// TradeRow is one parsed row of a daily trade file.
type TradeRow struct {
	Ticker       string
	Conditions   string
	Correction   int
	Exchange     int
	Price        float64
	SipTimestamp int64
	Size         float64
}

// Client wraps the S3 service client for listing and downloading daily
// option trade files from the vendor's S3-compatible endpoint.
type Client struct {
	client *s3.Client
	bucket string
}

// NewClient creates a bulk file client using static credentials and
// path-style addressing, which the S3-compatible endpoint requires.
func NewClient(accessKey, secretKey, endpoint string) *Client {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(endpoint),
		Credentials:  credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		UsePathStyle: true,
	})

	return &Client{
		client: client,
		bucket: defaultBucket,
	}
}

// DayKey builds the S3 object key for one trading day's trade file,
// following the pattern {asset}/{type}/{year}/{month}/{date}.csv.gz.
func DayKey(day time.Time) string {
	d := day.UTC()
	return fmt.Sprintf("%s/%s/%04d/%02d/%s.csv.gz",
		assetPrefix, dataType, d.Year(), int(d.Month()), d.Format("2006-01-02"))
}

// MonthPrefix builds the S3 key prefix covering one month of daily
// files, for listing.
func MonthPrefix(year int, month time.Month) string {
	return fmt.Sprintf("%s/%s/%04d/%02d/", assetPrefix, dataType, year, int(month))
}

// ListMonth lists all daily trade files available for the given month.
func (c *Client) ListMonth(ctx context.Context, year int, month time.Month) ([]FileInfo, error) {
	prefix := MonthPrefix(year, month)

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	}

	result, err := c.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects with prefix %s: %w", prefix, err)
	}

	var files []FileInfo
	for _, obj := range result.Contents {
		files = append(files, FileInfo{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}

	return files, nil
}

// DownloadDay downloads one day's trade file to the destination path. A
// day the vendor has no file for produces a blank file with just the
// header, so downstream consumers see a uniform format.
func (c *Client) DownloadDay(ctx context.Context, day time.Time, destPath string) error {
	key := DayKey(day)

	input := &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}

	result, err := c.client.GetObject(ctx, input)
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return WriteBlankFile(destPath)
		}
		return fmt.Errorf("failed to download %s: %w", key, err)
	}
	defer result.Body.Close()

	file, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", destPath, err)
	}
	defer file.Close()

	if _, err := io.Copy(file, result.Body); err != nil {
		return fmt.Errorf("failed to write file %s: %w", destPath, err)
	}

	return nil
}

// FetchDay downloads and parses one day's trade file in memory. A
// missing day yields an empty slice.
func (c *Client) FetchDay(ctx context.Context, day time.Time) ([]TradeRow, error) {
	key := DayKey(day)

	input := &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}

	result, err := c.client.GetObject(ctx, input)
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}
	defer result.Body.Close()

	return ParseTradeFile(result.Body)
}

// WriteBlankFile writes a file containing only the trade file header.
func WriteBlankFile(destPath string) error {
	if err := os.WriteFile(destPath, []byte(Header+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write blank file %s: %w", destPath, err)
	}
	return nil
}

// ParseTradeFile decodes a gzipped CSV trade file. Rows with the wrong
// column count or an unparseable price, timestamp, or size are skipped
// rather than failing the whole day; an unparseable correction or
// exchange is read as 0 and the row is kept.
func ParseTradeFile(r io.Reader) ([]TradeRow, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer gz.Close()

	reader := csv.NewReader(gz)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}

	var rows []TradeRow
	for i, record := range records {
		if i == 0 {
			// Header row.
			continue
		}

		if len(record) != 7 {
			continue
		}

		correction, _ := strconv.Atoi(record[2])
		exchange, _ := strconv.Atoi(record[3])

		price, err := strconv.ParseFloat(record[4], 64)
		if err != nil {
			continue
		}

		sipTimestamp, err := strconv.ParseInt(record[5], 10, 64)
		if err != nil {
			continue
		}

		size, err := strconv.ParseFloat(record[6], 64)
		if err != nil {
			continue
		}

		rows = append(rows, TradeRow{
			Ticker:       record[0],
			Conditions:   record[1],
			Correction:   correction,
			Exchange:     exchange,
			Price:        price,
			SipTimestamp: sipTimestamp,
			Size:         size,
		})
	}

	return rows, nil
}
