package playlist

import (
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/afero"
)

func TestScan(t *testing.T) {
	Convey("Given a media directory", t, func() {
		fs := afero.NewMemMapFs()
		dir := filepath.Join("media", "videos")
		for _, name := range []string{"b.mkv", "a.mp4", ".hidden.mp4", "c.webm"} {
			So(afero.WriteFile(fs, filepath.Join(dir, name), []byte("x"), 0o644), ShouldBeNil)
		}
		So(fs.MkdirAll(filepath.Join(dir, "extras"), 0o755), ShouldBeNil)

		Convey("When scanning the directory", func() {
			files, err := Scan(fs, []string{dir}, false)

			Convey("Then visible files are listed in name order", func() {
				So(err, ShouldBeNil)
				So(files, ShouldResemble, []string{
					filepath.Join(dir, "a.mp4"),
					filepath.Join(dir, "b.mkv"),
					filepath.Join(dir, "c.webm"),
				})
			})
		})

		Convey("When hidden files are included", func() {
			files, err := Scan(fs, []string{dir}, true)

			Convey("Then the hidden file comes first", func() {
				So(err, ShouldBeNil)
				So(files, ShouldHaveLength, 4)
				So(files[0], ShouldEqual, filepath.Join(dir, ".hidden.mp4"))
			})
		})

		Convey("When scanning single files", func() {
			files, err := Scan(fs, []string{filepath.Join(dir, "c.webm"), filepath.Join(dir, "a.mp4")}, false)

			Convey("Then they are kept in argument order", func() {
				So(err, ShouldBeNil)
				So(files, ShouldResemble, []string{filepath.Join(dir, "c.webm"), filepath.Join(dir, "a.mp4")})
			})
		})

		Convey("When a path does not exist", func() {
			_, err := Scan(fs, []string{"nowhere"}, false)

			Convey("Then an error is returned", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When no path is given", func() {
			_, err := Scan(fs, nil, false)

			Convey("Then ErrEmptyArgs is returned", func() {
				So(err, ShouldEqual, ErrEmptyArgs)
			})
		})

		Convey("When the directory is empty", func() {
			empty := filepath.Join("media", "empty")
			So(fs.MkdirAll(empty, 0o755), ShouldBeNil)
			files, err := Scan(fs, []string{empty}, false)

			Convey("Then the playlist is empty", func() {
				So(err, ShouldBeNil)
				So(files, ShouldBeEmpty)
			})
		})
	})
}
