/*
Package atomicfile writes files so that the destination either has the
complete new content or is left untouched.

Data goes to a temporary file in the same directory. Close syncs it and
renames it over the destination. If Write or Close fails, the temporary file
is removed and the error is returned.

	func save(path string, write func(io.Writer) error) error {
		f, err := atomicfile.New(path)
		if err != nil {
			return err
		}
		defer f.RemoveIfNotClosed()

		if err = write(f); err != nil {
			return err
		}
		return f.Close()
	}

kvstore uses it to rewrite the whole store file on every save.
*/
package atomicfile
