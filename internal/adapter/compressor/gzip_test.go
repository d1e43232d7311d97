package compressor

import (
	"bytes"
	stdgzip "compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestGzipCompressor(t *testing.T) {
	Convey("Given a GzipCompressor", t, func() {
		compressor := NewGzip()
		dir := t.TempDir()

		So(compressor.Extension(), ShouldEqual, ".gz")

		Convey("Compress method", func() {
			Convey("When compressing a valid dump", func() {
				inputContent := []byte(strings.Repeat("INSERT INTO users VALUES (1, 'alice');\n", 200))
				input := filepath.Join(dir, "prod_pg_20240601_123045.sql")
				So(os.WriteFile(input, inputContent, 0644), ShouldBeNil)
				output := input + compressor.Extension()

				err := compressor.Compress(input, output)

				Convey("It should write a standard gzip stream", func() {
					So(err, ShouldBeNil)

					f, err := os.Open(output)
					So(err, ShouldBeNil)
					defer f.Close()

					// Readable by the standard library decoder.
					reader, err := stdgzip.NewReader(f)
					So(err, ShouldBeNil)
					var got bytes.Buffer
					_, err = got.ReadFrom(reader)
					So(err, ShouldBeNil)
					So(got.Bytes(), ShouldResemble, inputContent)
				})

				Convey("It should shrink repetitive input", func() {
					info, err := os.Stat(output)
					So(err, ShouldBeNil)
					So(info.Size(), ShouldBeLessThan, int64(len(inputContent)))
				})
			})

			Convey("When the source file does not exist", func() {
				err := compressor.Compress(filepath.Join(dir, "nonexistent.sql"), filepath.Join(dir, "out.gz"))
				Convey("It should return an error", func() {
					So(err, ShouldNotBeNil)
					So(err.Error(), ShouldContainSubstring, "failed to open source file")
				})
			})

			Convey("When the destination path is invalid", func() {
				input := filepath.Join(dir, "in.sql")
				So(os.WriteFile(input, []byte("x"), 0644), ShouldBeNil)

				err := compressor.Compress(input, filepath.Join(dir, "missing", "dir", "out.gz"))
				Convey("It should return an error", func() {
					So(err, ShouldNotBeNil)
					So(err.Error(), ShouldContainSubstring, "failed to create dest file")
				})
			})
		})

		Convey("Decompress method", func() {
			Convey("When decompressing what Compress wrote", func() {
				inputContent := []byte("CREATE TABLE orders (id int);\n")
				input := filepath.Join(dir, "orders.sql")
				So(os.WriteFile(input, inputContent, 0644), ShouldBeNil)
				So(compressor.Compress(input, input+".gz"), ShouldBeNil)

				restored := filepath.Join(dir, "restored.sql")
				err := compressor.Decompress(input+".gz", restored)

				Convey("It should reproduce the original bytes", func() {
					So(err, ShouldBeNil)
					got, err := os.ReadFile(restored)
					So(err, ShouldBeNil)
					So(got, ShouldResemble, inputContent)
				})
			})

			Convey("When the source file does not exist", func() {
				err := compressor.Decompress(filepath.Join(dir, "nonexistent.gz"), filepath.Join(dir, "out.sql"))
				Convey("It should return an error", func() {
					So(err, ShouldNotBeNil)
					So(err.Error(), ShouldContainSubstring, "failed to open source file")
				})
			})

			Convey("When the source file is not a valid gzip file", func() {
				invalid := filepath.Join(dir, "plain.gz")
				So(os.WriteFile(invalid, []byte("not a gzip file"), 0644), ShouldBeNil)

				err := compressor.Decompress(invalid, filepath.Join(dir, "out.sql"))
				Convey("It should return an error", func() {
					So(err, ShouldNotBeNil)
					So(err.Error(), ShouldContainSubstring, "failed to create gzip reader")
				})
			})
		})
	})
}
