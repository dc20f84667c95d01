// Package smb transfers finished job output to a network share via the
// smbclient CLI, deleting local copies once uploads succeed.
package smb
