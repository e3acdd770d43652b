package syscall

import (
	"context"
	"io"
	"os"

	"github.com/kaedeos/kos/pkg/types"
)

// registerFilesystemSyscalls wires the filesystem.* category onto plain
// os/io calls. Mount management is a namespace/kernel concern this runtime
// explicitly does not implement (see the non-goals), so those two syscalls
// are registered but always return NOT_IMPLEMENTED rather than being absent
// from the dispatcher's id set.
func (k *Kernel) registerFilesystemSyscalls(d *Dispatcher) {
	d.Register(types.CategoryFilesystem, "mount_filesystem", []ParamSpec{
		{Name: "source", Type: TypeString, Required: true},
		{Name: "target", Type: TypeString, Required: true},
	}, notImplemented)

	d.Register(types.CategoryFilesystem, "unmount_filesystem", []ParamSpec{
		{Name: "target", Type: TypeString, Required: true},
	}, notImplemented)

	d.Register(types.CategoryFilesystem, "get_mounted_filesystems", nil,
		func(ctx context.Context, args map[string]any) (any, error) {
			return []string{}, nil
		})

	d.Register(types.CategoryFilesystem, "create_file", []ParamSpec{
		{Name: "path", Type: TypeString, Required: true},
		{Name: "permissions", Type: TypeInt, Default: 0o644},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		f, err := os.OpenFile(argString(args, "path"), os.O_CREATE|os.O_EXCL|os.O_WRONLY, os.FileMode(argInt(args, "permissions")))
		if err != nil {
			if os.IsExist(err) {
				return nil, types.ErrAlreadyExists
			}
			return nil, err
		}
		return true, f.Close()
	})

	d.Register(types.CategoryFilesystem, "delete_file", []ParamSpec{
		{Name: "path", Type: TypeString, Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return true, removeOrNotFound(argString(args, "path"))
	})

	d.Register(types.CategoryFilesystem, "create_directory", []ParamSpec{
		{Name: "path", Type: TypeString, Required: true},
		{Name: "permissions", Type: TypeInt, Default: 0o755},
		{Name: "recursive", Type: TypeBool},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		mode := os.FileMode(argInt(args, "permissions"))
		path := argString(args, "path")
		var err error
		if argBool(args, "recursive") {
			err = os.MkdirAll(path, mode)
		} else {
			err = os.Mkdir(path, mode)
		}
		if os.IsExist(err) {
			return nil, types.ErrAlreadyExists
		}
		return true, err
	})

	d.Register(types.CategoryFilesystem, "delete_directory", []ParamSpec{
		{Name: "path", Type: TypeString, Required: true},
		{Name: "recursive", Type: TypeBool},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		path := argString(args, "path")
		var err error
		if argBool(args, "recursive") {
			err = os.RemoveAll(path)
		} else {
			err = os.Remove(path)
		}
		if os.IsNotExist(err) {
			return nil, types.ErrNotFound
		}
		return true, err
	})

	d.Register(types.CategoryFilesystem, "list_directory", []ParamSpec{
		{Name: "path", Type: TypeString, Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		entries, err := os.ReadDir(argString(args, "path"))
		if os.IsNotExist(err) {
			return nil, types.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		return names, nil
	})

	d.Register(types.CategoryFilesystem, "get_file_info", []ParamSpec{
		{Name: "path", Type: TypeString, Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		info, err := os.Stat(argString(args, "path"))
		if os.IsNotExist(err) {
			return nil, types.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"name":     info.Name(),
			"size":     info.Size(),
			"mode":     info.Mode().String(),
			"mod_time": info.ModTime(),
			"is_dir":   info.IsDir(),
		}, nil
	})

	d.Register(types.CategoryFilesystem, "read_file", []ParamSpec{
		{Name: "path", Type: TypeString, Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		data, err := os.ReadFile(argString(args, "path"))
		if os.IsNotExist(err) {
			return nil, types.ErrNotFound
		}
		return data, err
	})

	d.Register(types.CategoryFilesystem, "write_file", []ParamSpec{
		{Name: "path", Type: TypeString, Required: true},
		{Name: "data", Type: TypeAny, Required: true},
		{Name: "append", Type: TypeBool},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		data, err := asBytes(args["data"])
		if err != nil {
			return nil, err
		}
		flags := os.O_CREATE | os.O_WRONLY
		if argBool(args, "append") {
			flags |= os.O_APPEND
		} else {
			flags |= os.O_TRUNC
		}
		f, err := os.OpenFile(argString(args, "path"), flags, 0o644)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		n, err := f.Write(data)
		return n, err
	})

	d.Register(types.CategoryFilesystem, "copy_file", []ParamSpec{
		{Name: "source", Type: TypeString, Required: true},
		{Name: "destination", Type: TypeString, Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		src, err := os.Open(argString(args, "source"))
		if os.IsNotExist(err) {
			return nil, types.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		defer src.Close()

		dst, err := os.Create(argString(args, "destination"))
		if err != nil {
			return nil, err
		}
		defer dst.Close()

		n, err := io.Copy(dst, src)
		return n, err
	})

	d.Register(types.CategoryFilesystem, "move_file", []ParamSpec{
		{Name: "source", Type: TypeString, Required: true},
		{Name: "destination", Type: TypeString, Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		err := os.Rename(argString(args, "source"), argString(args, "destination"))
		if os.IsNotExist(err) {
			return nil, types.ErrNotFound
		}
		return true, err
	})

	d.Register(types.CategoryFilesystem, "rename", []ParamSpec{
		{Name: "path", Type: TypeString, Required: true},
		{Name: "new_name", Type: TypeString, Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		err := os.Rename(argString(args, "path"), argString(args, "new_name"))
		if os.IsNotExist(err) {
			return nil, types.ErrNotFound
		}
		return true, err
	})
}

func removeOrNotFound(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return types.ErrNotFound
	}
	return err
}

func notImplemented(ctx context.Context, args map[string]any) (any, error) {
	return nil, types.ErrNotImplemented
}
