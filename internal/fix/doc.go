// Package fix implements the tag=value wire codec spoken between the router,
// brokers and markets.
//
// A wire message is one newline-terminated line:
//
//	8=FIX.4.4␁9=<bodyLength>␁<body>10=<checksum>␁
//
// where ␁ is SOH (0x01) and body is an ordered sequence of tag=value␁ fields
// starting with 35=<MsgType>. The checksum is the byte sum of everything
// before "10=" modulo 256, written as three zero-padded digits.
package fix
