// Package credentials resolves Kognic API client credentials.
//
// A credential pair can come from several places; Resolver tries them in
// strict precedence order and stops at the first complete pair:
//  1. An explicitly supplied Locator (inline pair, file path, or
//     keyring://<profile> reference). When given, only this source is tried
//     and any failure is fatal.
//  2. The KOGNIC_CREDENTIALS environment variable naming a credentials file.
//  3. The KOGNIC_CLIENT_ID and KOGNIC_CLIENT_SECRET environment variables.
//  4. The "default" profile of the OS credential store.
//
// The keyring-backed Store persists full credential pairs under named
// profiles so that environments.json can reference them as
// keyring://<profile> without keeping secrets on disk.
package credentials
