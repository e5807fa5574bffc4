package server

import (
	"net/http"
	"os"
)

// filesOnly hides directories so the download tree cannot be listed; job
// outputs are reachable only through the links handed out in results.
type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}

func downloadHandler(dir string) http.Handler {
	return http.StripPrefix("/download/", http.FileServer(filesOnly{http.Dir(dir)}))
}
