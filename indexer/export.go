package indexer

import (
	"fmt"
	"os"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetRow struct {
	Seq        int64  `parquet:"name=seq, type=INT64"`
	LotteryID  string `parquet:"name=lottery_id, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Type       string `parquet:"name=type, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Attributes string `parquet:"name=attributes, type=UTF8, encoding=PLAIN_DICTIONARY"`
	RecordedAt string `parquet:"name=recorded_at, type=UTF8, encoding=PLAIN_DICTIONARY"`
}

// ExportParquet writes the journal of lotteryID (or every lottery when empty)
// to a Snappy-compressed parquet file and returns the number of rows.
func (j *Journal) ExportParquet(path, lotteryID string) (int, error) {
	records, err := j.Events(lotteryID, 0)
	if err != nil {
		return 0, err
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("indexer: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("indexer: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, rec := range records {
		row := &parquetRow{
			Seq:        int64(rec.ID),
			LotteryID:  rec.LotteryID,
			Type:       rec.Type,
			Attributes: rec.Attributes,
			RecordedAt: rec.RecordedAt.UTC().Format(time.RFC3339),
		}
		if err := pw.Write(row); err != nil {
			file.Close()
			return 0, fmt.Errorf("indexer: write parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return 0, fmt.Errorf("indexer: finalize parquet: %w", err)
	}
	if err := file.Close(); err != nil {
		return 0, err
	}
	return len(records), nil
}
